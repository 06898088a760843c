// Package gateway holds the shared configuration for the gateway's
// external surfaces. The HTTP REST implementation lives in the http
// subpackage.
package gateway
