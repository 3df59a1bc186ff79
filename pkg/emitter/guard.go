/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: guard.go
Description: Client-side guard script. Rewrites vendor URLs passed to fetch, XHR,
WebSocket and importScripts at call time and blocks top-level navigation away from the
proxy. Rendered per RuleSet and syntax-checked with goja before emission.
*/

package emitter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/dop251/goja"
)

// guardTemplate is the injected script. It is plain ES5 so that it runs in old embedded
// browsers and in goja.
const guardTemplate = `(function () {
  'use strict';
  if (window.__mirrorGuardActive) { return; }
  window.__mirrorGuardActive = true;

  var proxyHost = {{.ProxyHost}};
  var httpScheme = {{.HTTPScheme}};
  var wsScheme = {{.WSScheme}};
  var domains = {{.Domains}};

  var escapeRe = function (s) { return s.replace(/[.*+?^${}()|[\]\\]/g, '\\$&'); };
  var pattern = domains.length ? new RegExp('(https?|wss?):\\/\\/(' + domains.map(escapeRe).join('|') + ')(?![a-zA-Z0-9.-])', 'gi') : null;

  var fixUrl = function (url) {
    if (!pattern || typeof url !== 'string' || !url) { return url; }
    pattern.lastIndex = 0;
    return url.replace(pattern, function (match, scheme) {
      var target = scheme.charAt(0).toLowerCase() === 'w' ? wsScheme : httpScheme;
      return target + '://' + proxyHost;
    });
  };
  window.__mirrorFixUrl = fixUrl;

  try { window.__webpack_public_path__ = httpScheme + '://' + proxyHost + '/'; } catch (e) {}

  if (typeof window.fetch === 'function') {
    var nativeFetch = window.fetch;
    window.fetch = function (input, init) {
      if (typeof input === 'string') {
        return nativeFetch.call(this, fixUrl(input), init);
      }
      if (input && typeof input.url === 'string' && typeof Request !== 'undefined' && input instanceof Request) {
        var fixed = fixUrl(input.url);
        if (fixed !== input.url) { input = new Request(fixed, input); }
      }
      return nativeFetch.call(this, input, init);
    };
  }

  if (window.XMLHttpRequest && window.XMLHttpRequest.prototype) {
    var nativeOpen = window.XMLHttpRequest.prototype.open;
    window.XMLHttpRequest.prototype.open = function (method, url) {
      var args = Array.prototype.slice.call(arguments);
      args[1] = fixUrl(url);
      return nativeOpen.apply(this, args);
    };
  }

  if (typeof window.WebSocket === 'function') {
    var NativeWebSocket = window.WebSocket;
    var GuardedWebSocket = function (url, protocols) {
      return protocols === undefined ? new NativeWebSocket(fixUrl(url)) : new NativeWebSocket(fixUrl(url), protocols);
    };
    GuardedWebSocket.prototype = NativeWebSocket.prototype;
    GuardedWebSocket.CONNECTING = 0;
    GuardedWebSocket.OPEN = 1;
    GuardedWebSocket.CLOSING = 2;
    GuardedWebSocket.CLOSED = 3;
    window.WebSocket = GuardedWebSocket;
  }

  if (typeof window.importScripts === 'function') {
    var nativeImportScripts = window.importScripts;
    window.importScripts = function () {
      var urls = Array.prototype.slice.call(arguments).map(fixUrl);
      return nativeImportScripts.apply(this, urls);
    };
  }

  var blockNavigation = function (url) {
    if (typeof console !== 'undefined' && console.log) { console.log('Blocked redirect to:', url); }
    return false;
  };
  try { window.location.replace = blockNavigation; } catch (e) {}
  try { window.location.assign = blockNavigation; } catch (e) {}
  try {
    var currentHref = window.location.href;
    Object.defineProperty(window.location, 'href', {
      configurable: true,
      get: function () { return currentHref; },
      set: blockNavigation
    });
  } catch (e) {}

  if (typeof window.open === 'function') {
    var nativeWindowOpen = window.open;
    window.open = function (url, target, features) {
      if (target === '_self' || target === '_top' || target === '_parent') {
        blockNavigation(url);
        return null;
      }
      return nativeWindowOpen.call(this, fixUrl(url), target, features);
    };
  }
})();`

var guardTmpl = template.Must(template.New("guard").Parse(guardTemplate))

// GuardOptions parameterize the guard script
type GuardOptions struct {
	ProxyHost string
	Scheme    string
	Domains   []string
}

// RenderGuardScript renders the guard for the given vendor domains
func RenderGuardScript(opts GuardOptions) (string, error) {
	if opts.ProxyHost == "" {
		return "", fmt.Errorf("guard script requires a proxy host")
	}
	scheme := opts.Scheme
	if scheme == "" {
		scheme = "http"
	}
	wsScheme := "ws"
	if scheme == "https" {
		wsScheme = "wss"
	}

	domains := orderDomains(opts.Domains)
	data := map[string]string{}
	for key, v := range map[string]any{
		"ProxyHost":  opts.ProxyHost,
		"HTTPScheme": scheme,
		"WSScheme":   wsScheme,
		"Domains":    domains,
	} {
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode guard parameter %s: %w", key, err)
		}
		data[key] = string(encoded)
	}

	var buf bytes.Buffer
	if err := guardTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render guard script: %w", err)
	}
	script := buf.String()
	if err := ValidateGuardScript(script); err != nil {
		return "", err
	}
	return script, nil
}

// ValidateGuardScript compiles the script with goja and checks that it can be embedded
// in the Lua long string that carries it
func ValidateGuardScript(script string) error {
	if _, err := goja.Compile("guard.js", script, true); err != nil {
		return fmt.Errorf("guard script does not compile: %w", err)
	}
	if strings.Contains(script, luaLongClose) {
		return fmt.Errorf("guard script contains the Lua long-string terminator %q", luaLongClose)
	}
	return nil
}
