// Package lucky fetches service status from a Lucky reverse-proxy device.
//
// A device exposes its rules through a JSON status endpoint whose shape
// differs between firmware versions. The client normalizes every known
// shape into a list of ServiceRecord values:
//
//   - nested ruleList[].ProxyList[] entries
//   - a flat top-level ProxyList[]
//   - a statistics map keyed by rule or service
//   - a single top-level Connections counter
//
// Payloads matching none of these are reported as no activity.
//
// # Usage
//
//	client := lucky.NewClient("home", url, logger, lucky.WithToken(token))
//	records, err := client.Fetch(ctx)
package lucky
