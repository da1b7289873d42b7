// Package auth issues and validates the HS256 session tokens handed out at
// login. A token carries the user id, email and role; the HTTP middleware
// validates it on every authenticated request and enforces roles from it.
package auth
