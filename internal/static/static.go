// Package static renders the fixed, non-filesystem responses the
// ResponseRouter can produce: the HTTP-error stub, the Gopher+ fallback
// stub, the URL meta-refresh redirect page, and the /caps.txt document.
package static

import (
	"fmt"
	"strings"
)

// HTTPErrorStub renders the HTTP/1.1 400 response sent when a client
// mistakes the Gopher port for an HTTP one (spec §6). body overrides the
// built-in default when non-empty; port is omitted from the link when it
// equals 70.
func HTTPErrorStub(hostname string, port int, body string) []byte {
	if body == "" {
		link := "gopher://" + hostname + "/"
		if port != 70 {
			link = fmt.Sprintf("gopher://%s:%d/", hostname, port)
		}
		body = "<html><head><title>Bad Request</title></head>" +
			"<body><h1>Bad Request</h1><p>This is a Gopher server, not an HTTP server. " +
			"Try <a href=\"" + link + "\">" + link + "</a> instead.</p></body></html>"
	}

	var b strings.Builder
	b.WriteString("HTTP/1.1 400 Bad request\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Server: Motsognir\r\n")
	b.WriteString("Connection: close\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// GopherPlusStub is the fixed five-line response advertising that this
// server does not implement Gopher+ (spec §6, end-to-end scenario 6).
func GopherPlusStub() []byte {
	return []byte("+-1\r\n" +
		"+INFO: 1Error\tfake\tfake\t0\r\n" +
		"+ADMIN:\r\n" +
		" Admin: none\r\n" +
		".\r\n")
}

// URLRedirectPage renders the HTML meta-refresh page used to bounce a
// client that sent a "URL:..." pseudo-selector to an actual web browser
// (spec §6, end-to-end scenario 4). It carries no trailing ".\r\n"
// terminator: this is a raw HTML document, not a menu.
func URLRedirectPage(target string) []byte {
	return []byte("<html><head>" +
		"<meta http-equiv=\"refresh\" content=\"10;url=" + target + "\">" +
		"</head><body>" +
		"<p>You are being redirected. If nothing happens, " +
		"<a href=\"" + target + "\">click here</a>.</p>" +
		"</body></html>")
}

// CapsOptions carries the optional CAPS metadata strings (spec §6).
type CapsOptions struct {
	Version         string
	Architecture    string
	Description     string
	Geolocation     string
	DefaultEncoding string
}

// CapsDocument renders the /caps.txt body, in the exact key order spec §6
// prescribes. The trailing "." terminator is appended by the caller, like
// every other menu-shaped response.
func CapsDocument(opts CapsOptions) []byte {
	version := opts.Version
	if version == "" {
		version = "unknown"
	}

	var b strings.Builder
	b.WriteString("CAPS\r\n")
	b.WriteString("CapsVersion=1\r\n")
	b.WriteString("ExpireCapsAfter=3600\r\n")
	b.WriteString("PathDelimiter=/\r\n")
	b.WriteString("PathIdentity=.\r\n")
	b.WriteString("PathParent=..\r\n")
	b.WriteString("PathParentDouble=FALSE\r\n")
	b.WriteString("PathKeepPreDelimeter=FALSE\r\n")
	b.WriteString("ServerSoftware=Motsognir\r\n")
	b.WriteString("ServerSoftwareVersion=" + version + "\r\n")
	if opts.Architecture != "" {
		b.WriteString("ServerArchitecture=" + opts.Architecture + "\r\n")
	}
	if opts.Description != "" {
		b.WriteString("ServerDescription=" + opts.Description + "\r\n")
	}
	if opts.Geolocation != "" {
		b.WriteString("ServerGeolocationString=" + opts.Geolocation + "\r\n")
	}
	if opts.DefaultEncoding != "" {
		b.WriteString("ServerDefaultEncoding=" + opts.DefaultEncoding + "\r\n")
	}
	return []byte(b.String())
}
