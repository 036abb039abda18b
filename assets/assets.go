// Package assets embeds the database migrations and the email templates.
package assets

import "embed"

const (
	MigrationsDir = "migrations"
	TemplatesDir  = "templates"
)

//go:embed migrations/*.sql templates/*
var FS embed.FS
