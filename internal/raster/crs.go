package raster

import (
	"fmt"
	"strings"
)

// CRS identifies a coordinate reference system by authority code.
type CRS struct {
	Code string `json:"code"`
}

func (c CRS) String() string {
	return c.Code
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), ""))
}

// aliasGroups lists codes that name the same system under a different
// authority, so that a transform between them is the identity.
var aliasGroups = [][]string{
	{"EPSG:4326", "WGS84", "OGC:CRS84"},
	{"EPSG:3857", "EPSG:900913", "WEBMERCATOR"},
}

// Equivalent reports whether two CRS declarations name the same system,
// ignoring naming metadata such as case and whitespace.
func (c CRS) Equivalent(o CRS) bool {
	return normalizeCode(c.Code) == normalizeCode(o.Code)
}

// Transform is a derived coordinate operation between two systems.
type Transform struct {
	From, To string
	Identity bool
}

// TransformTo attempts to derive a transform from c to o. Systems that are
// aliases of each other yield an identity transform; anything else is
// unreachable without a full projection engine and returns an error.
func (c CRS) TransformTo(o CRS) (Transform, error) {
	from := normalizeCode(c.Code)
	to := normalizeCode(o.Code)
	if from == to {
		return Transform{From: from, To: to, Identity: true}, nil
	}
	for _, group := range aliasGroups {
		var hasFrom, hasTo bool
		for _, code := range group {
			if code == from {
				hasFrom = true
			}
			if code == to {
				hasTo = true
			}
		}
		if hasFrom && hasTo {
			return Transform{From: from, To: to, Identity: true}, nil
		}
	}
	return Transform{}, fmt.Errorf("no transform from %q to %q", c.Code, o.Code)
}
