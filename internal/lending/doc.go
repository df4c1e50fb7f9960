// Package lending is a mortgage-underwriting business layer for the engine:
// section types, the rules that turn collaborator responses into ratios and
// decisions, simulated external services, and the default loan pipeline.
//
// The simulated services are deterministic. A credit score is derived from
// the borrower's SSN, appraisal markdowns and flood zones from the property
// zip code, so a scenario produces the same trace on every run. Latency and
// failures are injected per service through Behavior.
package lending
