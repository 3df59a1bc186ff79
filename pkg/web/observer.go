/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: observer.go
Description: Traffic Observer selection.
*/

package web

import (
	"fmt"

	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	"github.com/sirupsen/logrus"
)

// Observer modes
const (
	ModeBrowser = "browser"
	ModeHTTP    = "http"
)

// NewObserver returns the observer selected by config.Mode
func NewObserver(config *interfaces.ObserverConfig, logger *logrus.Logger) (interfaces.TrafficObserver, error) {
	switch config.Mode {
	case ModeBrowser, "":
		return NewBrowserObserver(config, logger)
	case ModeHTTP:
		return NewHTTPObserver(config, logger)
	default:
		return nil, fmt.Errorf("unsupported observer mode: %q", config.Mode)
	}
}

var (
	_ interfaces.TrafficObserver = (*BrowserObserver)(nil)
	_ interfaces.TrafficObserver = (*HTTPObserver)(nil)
)
