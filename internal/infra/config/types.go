package config

import "strings"

// Environment identifies the runtime environment where the tracker operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

func normalizeEnvironment(env Environment) Environment {
	trimmed := strings.ToLower(strings.TrimSpace(string(env)))
	if trimmed == "" {
		return EnvDev
	}
	return Environment(trimmed)
}

// platformRegions maps platform routing values onto their regional cluster.
var platformRegions = map[string]string{
	"br1":  "americas",
	"la1":  "americas",
	"la2":  "americas",
	"na1":  "americas",
	"eun1": "europe",
	"euw1": "europe",
	"me1":  "europe",
	"ru":   "europe",
	"tr1":  "europe",
	"jp1":  "asia",
	"kr":   "asia",
	"oc1":  "sea",
	"sg2":  "sea",
	"tw2":  "sea",
	"vn2":  "sea",
}

// RegionForPlatform returns the regional routing value for a platform, or "" when unknown.
func RegionForPlatform(platform string) string {
	return platformRegions[strings.ToLower(strings.TrimSpace(platform))]
}
