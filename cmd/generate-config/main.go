package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/debemdeboas/coursesync/internal/config"
)

func main() {
	// Create a config with defaults applied
	cfg := config.Default()

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating YAML: %v\n", err)
		os.Exit(1)
	}

	header := "# coursesync configuration example\n" +
		"# Copy this file to coursesync.yaml and customize as needed.\n" +
		"# Secrets can be left empty and supplied through " +
		config.EnvAPIToken + ", " + config.EnvS3AccessKeyID + ", " +
		config.EnvS3SecretAccessKey + " and " + config.EnvRedisPassword + ".\n\n"
	output := header + string(yamlData)

	outputFile := "config.example.yaml"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	if outputFile == "-" {
		fmt.Print(output)
	} else {
		err = os.WriteFile(outputFile, []byte(output), 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated example config: %s\n", outputFile)
	}
}
