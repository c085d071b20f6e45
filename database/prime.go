package database

import (
	_ "embed"
)

//go:embed prime.sql.tmpl
var primeTemplate []byte

// PrimeTemplate returns the SQL template that provisions the service role
// and a login user. Callers render it with Username and Password fields.
func PrimeTemplate() []byte {
	return primeTemplate
}
