/*
Package ddns keeps Cloudflare A and AAAA records pointed at the host's current public addresses.

Usage will always start with [ddns.New],
which takes the names to keep updated and returns the DDNSClient implementation.
New requires a [Provider] implementation for the DNS provider, usually registered with [UsingCloudflare].
Additional client configuration options are listed in the docs for New.

A call to RunDDNS is a single reconciliation pass.
It looks up the public address for each enabled address family once,
then compares every (name, family) pair against the provider's current records and creates or updates only what differs.
Running it again with nothing changed makes no mutating calls.
Nothing is cached between runs and nothing is retried within a run;
schedule the program with cron or a systemd timer and the next run is the retry.
*/
package ddns
