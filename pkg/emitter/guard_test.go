/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: guard_test.go
Description: Executes the rendered guard script in goja against a stub window and checks
that vendor URLs are rewritten and navigation is blocked.
*/

package emitter

import (
	"strconv"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stubWindow = `
var calls = [];
var console = { log: function (msg, url) { calls.push('log ' + url); } };
var window = {
  fetch: function (url) { calls.push('fetch ' + url); return 'ok'; },
  XMLHttpRequest: function () {},
  WebSocket: function (url) { this.url = url; },
  location: { href: 'http://play.local:8080/' },
  open: function (url, target) { calls.push('open ' + url); return {}; }
};
window.XMLHttpRequest.prototype.open = function (method, url) { calls.push('xhr ' + method + ' ' + url); };
`

func guardRuntime(t *testing.T, scheme string) *goja.Runtime {
	t.Helper()
	script, err := RenderGuardScript(GuardOptions{
		ProxyHost: "play.local:8080",
		Scheme:    scheme,
		Domains:   []string{"vendor.example.com", "api.vendor.example.com"},
	})
	require.NoError(t, err)

	vm := goja.New()
	_, err = vm.RunString(stubWindow)
	require.NoError(t, err)
	_, err = vm.RunString(script)
	require.NoError(t, err)
	return vm
}

func run(t *testing.T, vm *goja.Runtime, js string) string {
	t.Helper()
	v, err := vm.RunString(js)
	require.NoError(t, err)
	return v.String()
}

func TestGuardFixUrl(t *testing.T) {
	vm := guardRuntime(t, "http")

	tests := []struct {
		in   string
		want string
	}{
		{"https://vendor.example.com/a", "http://play.local:8080/a"},
		{"HTTPS://API.Vendor.Example.com/v1?x=1", "http://play.local:8080/v1?x=1"},
		{"wss://vendor.example.com/socket", "ws://play.local:8080/socket"},
		{"https://vendor.example.com.evil.org/x", "https://vendor.example.com.evil.org/x"},
		{"https://other.org/x", "https://other.org/x"},
		{"/relative/path", "/relative/path"},
	}
	for _, tt := range tests {
		got := run(t, vm, `window.__mirrorFixUrl(`+jsString(tt.in)+`)`)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestGuardSecureScheme(t *testing.T) {
	vm := guardRuntime(t, "https")
	assert.Equal(t, "wss://play.local:8080/s", run(t, vm, `window.__mirrorFixUrl("ws://vendor.example.com/s")`))
	assert.Equal(t, "https://play.local:8080/", run(t, vm, `window.__webpack_public_path__`))
}

func TestGuardInterceptsTraffic(t *testing.T) {
	vm := guardRuntime(t, "http")
	run(t, vm, `
		window.fetch("https://api.vendor.example.com/config");
		var xhr = new window.XMLHttpRequest();
		xhr.open("POST", "https://vendor.example.com/api/spin");
		var ws = new window.WebSocket("wss://vendor.example.com/live");
		window.open("https://vendor.example.com/popup", "_blank");
	`)
	assert.Equal(t,
		"fetch http://play.local:8080/config|xhr POST http://play.local:8080/api/spin|open http://play.local:8080/popup",
		run(t, vm, `calls.join("|")`))
	assert.Equal(t, "ws://play.local:8080/live", run(t, vm, `ws.url`))
	assert.Equal(t, "1", run(t, vm, `window.WebSocket.OPEN`))
}

func TestGuardBlocksNavigation(t *testing.T) {
	vm := guardRuntime(t, "http")
	run(t, vm, `
		window.location.href = "https://elsewhere.org/";
		window.location.replace("https://elsewhere.org/replace");
		window.location.assign("https://elsewhere.org/assign");
		var opened = window.open("https://elsewhere.org/top", "_top");
	`)
	assert.Equal(t, "http://play.local:8080/", run(t, vm, `window.location.href`))
	assert.Equal(t, "null", run(t, vm, `String(opened)`))
	assert.Equal(t,
		"log https://elsewhere.org/|log https://elsewhere.org/replace|log https://elsewhere.org/assign|log https://elsewhere.org/top",
		run(t, vm, `calls.join("|")`))
}

func TestGuardInstallsOnce(t *testing.T) {
	vm := guardRuntime(t, "http")
	script, err := RenderGuardScript(GuardOptions{ProxyHost: "play.local:8080", Domains: []string{"vendor.example.com"}})
	require.NoError(t, err)
	_, err = vm.RunString(script)
	require.NoError(t, err)

	run(t, vm, `window.fetch("https://vendor.example.com/once")`)
	assert.Equal(t, "fetch http://play.local:8080/once", run(t, vm, `calls.join("|")`))
}

func TestRenderGuardScriptValidation(t *testing.T) {
	_, err := RenderGuardScript(GuardOptions{})
	assert.Error(t, err)

	assert.Error(t, ValidateGuardScript("function ("))
	assert.Error(t, ValidateGuardScript(`var s = "]==]";`))
	assert.NoError(t, ValidateGuardScript(`var s = "ok";`))

	script, err := RenderGuardScript(GuardOptions{ProxyHost: "play.local", Domains: nil})
	require.NoError(t, err)
	assert.Contains(t, script, "var domains = [];")
}

func jsString(s string) string {
	return strconv.Quote(s)
}
