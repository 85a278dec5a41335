package main

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/urfave/cli/v2"

	"github.com/agimus-project/agimus/config"
)

// SchemaAction prints the JSON schema of the configuration file.
func SchemaAction(c *cli.Context) error {
	schema, err := json.MarshalIndent(jsonschema.Reflect(&config.Config{}), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(schema))
	return err
}
