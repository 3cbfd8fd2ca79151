// Package hamibot implements the HTTP client for the Hamibot automation
// provider. It exposes the stop/run call pair against a fixed device and
// script identity, with a single transport-level retry policy shared by
// every call.
package hamibot
