package config

// mergeConfigs merges override configuration into base. A nil base yields a copy
// of override.
func mergeConfigs(base, override *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	result := *base

	if override.Version != "" {
		result.Version = override.Version
	}
	if override.PollInterval != "" {
		result.PollInterval = override.PollInterval
	}
	if override.Reclaim != "" {
		result.Reclaim = override.Reclaim
	}
	result.Watch = mergeWatch(result.Watch, override.Watch)
	result.Extensions = mergeExtensions(base.Extensions, override.Extensions)

	return &result
}

func mergeWatch(base, override WatchConfig) WatchConfig {
	if override.Dir != "" {
		base.Dir = override.Dir
	}
	if override.Debounce != "" {
		base.Debounce = override.Debounce
	}
	if len(override.Ignore) > 0 {
		base.Ignore = append(append([]string(nil), base.Ignore...), override.Ignore...)
	}
	return base
}

// mergeExtensions merges extension sections one level deep: keys of a section
// present on both sides are combined, override winning.
func mergeExtensions(base, override map[string]interface{}) map[string]interface{} {
	if len(base) == 0 && len(override) == 0 {
		return base
	}
	result := make(map[string]interface{}, len(base)+len(override))
	for key, value := range base {
		result[key] = value
	}
	for key, value := range override {
		baseMap, baseOk := result[key].(map[string]interface{})
		overrideMap, overrideOk := value.(map[string]interface{})
		if !baseOk || !overrideOk {
			result[key] = value
			continue
		}
		merged := make(map[string]interface{}, len(baseMap)+len(overrideMap))
		for k, v := range baseMap {
			merged[k] = v
		}
		for k, v := range overrideMap {
			merged[k] = v
		}
		result[key] = merged
	}
	return result
}
