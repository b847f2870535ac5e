package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// ValidatePackageName validates a package name against the registry grammar.
// Names are lowercase identifiers: they start with a letter and contain only
// letters, digits, hyphens, and underscores.
//
// The length ceiling and character checks also guard against path traversal,
// since package names become cache and index path components.
func ValidatePackageName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPackage, "package name cannot be empty")
	}

	if len(name) > 64 {
		return New(ErrCodeInvalidPackage, "package name too long (max 64 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPackage, "package name contains invalid control characters")
		}
	}

	if !packageNameRegex.MatchString(name) {
		return New(ErrCodeInvalidPackage, "invalid package name: %q (must start with a letter and contain only lowercase letters, digits, '-' and '_')", name)
	}

	return nil
}

// packageNameRegex matches valid package names.
var packageNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidateTargetName validates a compilation target name.
// Target names follow the same grammar as package names but additionally
// allow uppercase letters, since binary names often mirror project branding.
func ValidateTargetName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidManifest, "target name cannot be empty")
	}

	if !targetNameRegex.MatchString(name) {
		return New(ErrCodeInvalidManifest, "invalid target name: %q", name)
	}

	return nil
}

// targetNameRegex matches valid target names.
var targetNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// ValidatePath validates a file path inside a package or workspace for safety.
// It prevents path traversal attacks and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	// Simple scheme validation without full URL parsing
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}

// ValidateFeatureName validates a feature name declared in a manifest.
// Feature names follow the package name grammar; the reserved name "default"
// is allowed and treated like any other feature.
func ValidateFeatureName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidManifest, "feature name cannot be empty")
	}

	if !packageNameRegex.MatchString(name) {
		return New(ErrCodeInvalidManifest, "invalid feature name: %q", name)
	}

	return nil
}
