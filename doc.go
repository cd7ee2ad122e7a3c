// Package main provides the signhere CLI, which keeps App Store Connect
// certificates and provisioning profiles in shape for CI builds.
//
// For the library API, see the signhere subpackage:
//
//	import "github.com/aluedeke/go-signhere/pkg/signhere"
//
// # Installation
//
//	go install github.com/aluedeke/go-signhere@latest
//
// # Configuration
//
// API credentials and tool paths can be given as flags, as SIGNHERE_*
// environment variables (a .env file is loaded first) or in signhere.yaml:
//
//	key_identifier: ABC123DEFG
//	issuer_id: 69a6de7e-0000-47e3-e053-5b8c7c11a4d1
//	itunes_connect_key_path: /secrets/AuthKey_ABC123DEFG.p8
//	log:
//	  level: DEBUG
//
// Flags take precedence over the environment, which takes precedence over the file.
package main
