package mcp

import "fmt"

func getStringArg(args map[string]interface{}, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument: %s", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string, got %T", key, raw)
	}
	return s, nil
}

func getOptionalStringArg(args map[string]interface{}, key string) string {
	if raw, ok := args[key]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return ""
}

func getIntArg(args map[string]interface{}, key string) (int, error) {
	raw, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing required argument: %s", key)
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("argument %s must be a number, got %T", key, raw)
	}
}

func getOptionalIntArg(args map[string]interface{}, key string, fallback int) int {
	if _, ok := args[key]; !ok {
		return fallback
	}
	v, err := getIntArg(args, key)
	if err != nil {
		return fallback
	}
	return v
}

func getBoolArg(args map[string]interface{}, key string) (bool, error) {
	raw, ok := args[key]
	if !ok {
		return false, fmt.Errorf("missing required argument: %s", key)
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("argument %s must be a boolean, got %T", key, raw)
	}
	return b, nil
}
