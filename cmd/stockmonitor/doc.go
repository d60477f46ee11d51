// Command stockmonitor watches retailer product pages for stock changes.
//
// Usage:
//
//	stockmonitor run --config config.yaml
//	stockmonitor check https://www.bestbuy.ca/en-ca/product/18931348
//	stockmonitor targets
//
// Pushover credentials are read from PUSHOVER_USER_KEY and PUSHOVER_API_TOKEN,
// either in the environment or in a .env file in the working directory.
package main
