// Package appfs embeds the files shipped within the binaries: database migrations & email templates.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/*
var FS embed.FS
