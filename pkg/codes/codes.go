// Package codes resolves the numeric reference codes found in EMV data:
// ISO 4217 currencies, ISO 3166 countries and transaction types (tag 9C).
package codes
