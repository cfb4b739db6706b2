// Package configs embeds configuration templates so they ship with every
// build of multisearch.
//
// The project template is written by `multisearch config init --project`
// as .multisearch.yaml in the current directory. Keys it leaves commented
// out keep the value from the layers below it (defaults, then the user
// config at ~/.config/multisearch/config.yaml).
package configs

import _ "embed"

// ProjectConfigTemplate is the annotated template for a per-directory
// .multisearch.yaml.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
