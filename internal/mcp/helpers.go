package mcp

func getStringArg(args map[string]interface{}, key string) string {
	val, ok := args[key]
	if !ok {
		return ""
	}
	s, _ := val.(string)
	return s
}
