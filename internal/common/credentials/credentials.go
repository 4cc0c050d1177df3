package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no provider could supply a key
var ErrNoAPIKey = errors.New("no MBTA API key available")

// Provider yields the API key sent as the x-api-key header
type Provider interface {
	APIKey(ctx context.Context) (string, error)
}

// Static returns a fixed key, typically from MBTA_API_KEY
type Static string

func (s Static) APIKey(ctx context.Context) (string, error) {
	key := strings.TrimSpace(string(s))
	if key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// File reads a credentials file with `key=...` and `user=...` lines
type File struct {
	Path string
}

func (f File) APIKey(ctx context.Context) (string, error) {
	creds, err := f.Read()
	if err != nil {
		return "", err
	}
	if creds.Key == "" {
		return "", fmt.Errorf("%s: %w", f.Path, ErrNoAPIKey)
	}
	return creds.Key, nil
}

// Credentials is the parsed content of a credentials file
type Credentials struct {
	Key  string
	User string
}

func (f File) Read() (Credentials, error) {
	var creds Credentials

	fh, err := os.Open(f.Path)
	if err != nil {
		return creds, fmt.Errorf("opening credentials file: %w", err)
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		name, val, ok := field(scanner.Text())
		if !ok {
			continue
		}
		switch name {
		case "key":
			creds.Key = val
		case "user":
			creds.User = val
		}
	}
	if err := scanner.Err(); err != nil {
		return creds, fmt.Errorf("reading credentials file: %w", err)
	}

	return creds, nil
}

// field splits a `name=value` or `name: value` line
func field(line string) (name, val string, ok bool) {
	i := strings.IndexAny(line, "=:")
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}

// Chain tries each provider in order and returns the first key found
type Chain []Provider

func (c Chain) APIKey(ctx context.Context) (string, error) {
	var errs []error
	for _, p := range c {
		key, err := p.APIKey(ctx)
		if err == nil {
			return key, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrNoAPIKey
	}
	return "", fmt.Errorf("%w: %w", ErrNoAPIKey, errors.Join(errs...))
}
