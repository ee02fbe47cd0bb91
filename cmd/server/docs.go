// Package main Teranga Shop Payment API
//
//	@title						Teranga Shop Payment API
//	@version					1.0
//	@description				E-commerce checkout and payment reconciliation API for the Senegalese market (Wave, Orange Money, Stripe).
//
//	@contact.name				Teranga Shop Support
//	@contact.email				support@terangashop.sn
//
//	@license.name				Proprietary
//
//	@host						localhost:8080
//	@BasePath					/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"
//
//	@tag.name					Order
//	@tag.description			Order creation and lookup
//
//	@tag.name					Payment
//	@tag.description			Checkout initiation and refunds
//
//	@tag.name					Webhook
//	@tag.description			Provider webhook endpoints
//
//	@tag.name					Audit
//	@tag.description			Payment audit log queries
package main
