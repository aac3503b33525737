// Package postgres implements the PostgreSQL user and session store. It
// satisfies users.Store for CRUD and auth.Provider for bearer token
// resolution against the sessions table.
package postgres
