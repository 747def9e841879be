// Package main is the entry point for the creditmeter CLI.
//
//	@title						Creditmeter API
//	@version					1.0
//	@description				Usage and credit metering for NEXA Studio organizations.
//
//	@BasePath					/
//
//	@securityDefinitions.apikey	ServiceKey
//	@in							header
//	@name						X-Service-Key
//	@description				Service key checked against auth.service_key_hash
package main

//go:generate swag init -g cmd/creditmeter/main.go -d ../../ -o ../../docs/swagger --parseDependency

func main() {
	Execute()
}
