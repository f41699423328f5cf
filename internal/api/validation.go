package api

import (
	"fmt"
	"math"
	"strings"
)

// maxRegionIDLength bounds region ids accepted in paths.
const maxRegionIDLength = 128

func validateReconfigure(req ReconfigureRequest) error {
	if req.Hours == nil {
		return fmt.Errorf("hours is required")
	}
	h := *req.Hours
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return fmt.Errorf("hours must be a finite number")
	}
	if h <= 0 {
		return fmt.Errorf("hours must be positive")
	}
	return nil
}

func validateRegionID(id string) error {
	if id == "" {
		return fmt.Errorf("region id is required")
	}
	if len(id) > maxRegionIDLength {
		return fmt.Errorf("region id exceeds %d characters", maxRegionIDLength)
	}
	if strings.ContainsAny(id, "/?#") {
		return fmt.Errorf("region id contains invalid characters")
	}
	return nil
}
