package consulapi

import "strings"

// BuildTags encodes image/app-hostname/external-port metadata as
// Consul-style tags: image-{id}, app-hostname-{hostname},
// external-port-{n}. The owner user id is not encoded.
func BuildTags(imageID, appHostname string, externalPort int) []string {
	return []string{
		TagImagePrefix + imageID,
		TagAppHostnamePrefix + appHostname,
		TagExternalPortPrefix + itoa(externalPort),
	}
}

// ParseTags extracts imageID, appHostname, and externalPort back out of
// a tag list. Missing tags yield zero values.
func ParseTags(tags []string) (imageID, appHostname string, externalPort int) {
	for _, t := range tags {
		switch {
		case strings.HasPrefix(t, TagImagePrefix):
			imageID = strings.TrimPrefix(t, TagImagePrefix)
		case strings.HasPrefix(t, TagAppHostnamePrefix):
			appHostname = strings.TrimPrefix(t, TagAppHostnamePrefix)
		case strings.HasPrefix(t, TagExternalPortPrefix):
			externalPort = atoi(strings.TrimPrefix(t, TagExternalPortPrefix))
		}
	}
	return
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func atoi(s string) int {
	n := 0
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		return -n
	}
	return n
}
