// Copyright 2026 The gcpiam-search Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements iamfetch, the dataset builder for gcpiam-search.

It pages through the public IAM roles catalog (view=FULL, so every role
carries its included permissions), derives the dataset file and writes it as
JSON. Point the gcpiam server at the output with -data.

Fetch with application default credentials exported as a token:

	iamfetch -token "$(gcloud auth print-access-token)" -o data/iam-data.json

The fetcher rate limits itself to stay well under the API quota.
*/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dmitri-lerko/gcpiam-search/internal/gcp"
	"github.com/dmitri-lerko/gcpiam-search/internal/utils"
)

func main() {
	token := flag.String("token", "", "OAuth2 access token (empty for unauthenticated)")
	output := flag.String("o", "data/iam-data.json", "Output path for the dataset JSON")
	rps := flag.Float64("rps", 5, "Max API requests per second")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall fetch timeout")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	flag.Parse()

	if *debugMode {
		log.SetLevel(log.DebugLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fetcher := gcp.NewFetcher(ctx, gcp.Options{
		AccessToken:       *token,
		RequestsPerSecond: *rps,
	})

	log.Info("Fetching predefined role catalog...")
	roles, err := fetcher.FetchRoles(ctx)
	if err != nil {
		log.Fatalf("Fetch failed: %v", err)
	}

	file := gcp.BuildDataset(roles)
	log.Infof("Fetched %s roles covering %s distinct permissions",
		utils.FormatWithCommas(file.Metadata.TotalRoles),
		utils.FormatWithCommas(file.Metadata.TotalPermissions))

	if err := utils.EnsureDir(filepath.Dir(*output)); err != nil {
		log.Fatalf("Cannot create output directory: %v", err)
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		log.Fatalf("Encode dataset: %v", err)
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		log.Fatalf("Write dataset: %v", err)
	}
	log.Infof("Wrote dataset to %s (%s bytes)", *output, utils.FormatWithCommas(len(data)))
}
