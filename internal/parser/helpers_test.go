package parser

import "strings"

func decodeString(s string) (*Document, error) {
	return DecodePDF2JSON(strings.NewReader(s))
}
