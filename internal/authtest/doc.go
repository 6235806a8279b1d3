// Package authtest is an in-process fake of the remote authentication service.
//
// It implements the login, register, refresh, logout, password-recovery and
// profile endpoints with strict credential checks (argon2id password hashes,
// signed JWT access credentials, rotating opaque refresh credentials) plus a
// protected /api/echo endpoint. Test controls expire credentials, reject
// renewals and inject failures so that client behavior can be observed
// end-to-end.
package authtest
