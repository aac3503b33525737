// Package users implements user account CRUD: validation, duplicate email
// detection, and paged listing over a pluggable Store. The postgres
// subpackage provides the production store.
package users
