/*
Copyright (c) JSC iCore.

This source code is licensed under the MIT license found in the
LICENSE file in the root directory of this source tree.
*/

package main // import "github.com/i-core/consentd/cmd/consentd"

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/i-core/consentd/internal/server"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Version will be filled at compile time.
var Version = ""

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\n")
		if err := envconfig.Usagef("consentd", &server.Config{}, flag.CommandLine.Output(), envconfig.DefaultListFormat); err != nil {
			panic(err)
		}
	}
	verflag := flag.Bool("version", false, "print a version")
	flag.Parse()

	if *verflag {
		fmt.Println("consentd", Version)
		os.Exit(0)
	}

	var cnf server.Config
	if err := envconfig.Process("consentd", &cnf); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %s\n", err)
		os.Exit(1)
	}

	logFunc := zap.NewProduction
	if cnf.DevMode {
		logFunc = zap.NewDevelopment
	}
	log, err := logFunc()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %s\n", err)
		os.Exit(1)
	}

	server.Version = Version
	srv, err := server.New(cnf, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start the server: %s\n", err)
		os.Exit(1)
	}

	log = log.Named("main")
	log.Info("Consentd started", zap.Any("config", cnf), zap.String("version", Version))
	log.Fatal("Consentd finished", zap.Error(http.ListenAndServe(cnf.Listen, srv)))
}
