// Package cookie parses Netscape cookie files.
package cookie

import (
	"bufio"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// httpOnlyPrefix marks HttpOnly cookies in files exported by curl and browser
// extensions.
const httpOnlyPrefix = "#HttpOnly_"

// ParseFromFile parses a netscape cookie file.
func ParseFromFile(cookieFile string) ([]*http.Cookie, error) {
	file, err := os.Open(cookieFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file)
}

// Parse parses netscape cookies. Expired and malformed lines are skipped.
func Parse(r io.Reader) ([]*http.Cookie, error) {
	var cookies []*http.Cookie
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		}

		// Ignore comment and empty line
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		// Parse the line and extract the cookie fields.
		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			fields = strings.Fields(line)
		}
		if len(fields) < 6 {
			log.Warn().Str("line", line).Msg("skipped (not enough fields)")
			continue
		}
		domain := fields[0]
		// field[1] is includeSubdomains, implied by the leading dot of the domain.
		path := fields[2]
		isSecure, _ := strconv.ParseBool(fields[3])
		expiresUnix, _ := strconv.ParseInt(fields[4], 10, 64)
		name := fields[5]
		value := ""
		if len(fields) > 6 {
			value = fields[6]
		}

		// Convert the Unix timestamp to a time.Time object.
		expires := time.Unix(expiresUnix, 0)

		if expiresUnix != 0 && expires.Before(time.Now()) {
			log.Warn().Str("name", name).Str("domain", domain).Msg("skipped (expired)")
			continue
		}

		cookie := &http.Cookie{
			Name:     name,
			Value:    value,
			Domain:   domain,
			Path:     path,
			HttpOnly: httpOnly,
			Secure:   isSecure,
		}
		if expiresUnix != 0 {
			cookie.Expires = expires
		}
		cookies = append(cookies, cookie)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cookies, nil
}
