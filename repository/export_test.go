package repository

// StartPostgres is shared with the external test package.
var StartPostgres = startPostgres
