package db

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsCI builds a case-insensitive "column contains term" condition
// and its argument, matching LIKE wildcards in term literally.
func ContainsCI(column, term string) (string, string) {
	return "LOWER(" + column + `) LIKE ? ESCAPE '\'`, "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}
