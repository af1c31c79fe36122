// Package image resolves image references to stable content identities.
//
// Tags are mutable and many-to-one with image content, so nothing in this
// tool ever compares tag strings to decide whether two references are the
// same image. An Identity is the content-derived token that comparison uses
// instead: the repository digest when the registry provided one, or the
// engine's internal image ID for purely local images.
package image

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/distribution/reference"
	imagetypes "github.com/docker/docker/api/types/image"
	"github.com/opencontainers/go-digest"
)

// ErrImageNotFound reports that a reference could not be resolved against
// the local image store at all.
var ErrImageNotFound = errors.New("image not found")

// Placeholder marks ledger records that carry no resolvable identity.
const Placeholder = "-"

// Identity is an opaque content-derived token for an image. Two references
// denote the same image iff their Identities are equal.
type Identity string

// Valid reports whether id carries a real, resolvable identity: either a
// repository@digest reference or a bare engine image ID. The ledger
// placeholder and empty values are not valid.
func (id Identity) Valid() bool {
	s := string(id)
	if s == "" || s == Placeholder {
		return false
	}
	if repo, dg, ok := strings.Cut(s, "@"); ok {
		if strings.TrimSpace(repo) == "" {
			return false
		}
		_, err := digest.Parse(dg)
		return err == nil
	}
	_, err := digest.Parse(s)
	return err == nil
}

// Inspector is the single runtime capability resolution needs.
type Inspector interface {
	ImageInspect(ctx context.Context, ref string) (imagetypes.InspectResponse, error)
}

// Resolve maps a local image reference to its Identity. It prefers the
// repository digest matching the reference's repository and falls back to
// the engine image ID when the image has never been pushed or pulled by
// digest. Resolve never pulls: distinguishing "already up to date" from
// "freshly fetched" is the caller's job, so pulling must happen first.
func Resolve(ctx context.Context, inspector Inspector, ref string) (Identity, error) {
	info, err := inspector.ImageInspect(ctx, ref)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", fmt.Errorf("resolve %q: %w", ref, ErrImageNotFound)
		}
		return "", fmt.Errorf("resolve %q: %w", ref, err)
	}

	if dg := matchRepoDigest(ref, info.RepoDigests); dg != "" {
		return Identity(dg), nil
	}
	if len(info.RepoDigests) > 0 {
		return Identity(info.RepoDigests[0]), nil
	}
	if info.ID == "" {
		return "", fmt.Errorf("resolve %q: %w", ref, ErrImageNotFound)
	}
	return Identity(info.ID), nil
}

// matchRepoDigest picks the repo digest whose repository equals the
// reference's repository. An image tagged into several repositories has one
// digest per repository; the one for a different repository is not the
// identity of this reference.
func matchRepoDigest(ref string, repoDigests []string) string {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return ""
	}
	repo := reference.TrimNamed(named).Name()

	for _, rd := range repoDigests {
		parsed, err := reference.ParseNormalizedNamed(rd)
		if err != nil {
			continue
		}
		if reference.TrimNamed(parsed).Name() == repo {
			return rd
		}
	}
	return ""
}

// Retag rewrites ref to carry tag, dropping any existing tag or digest.
// The repository part is preserved in its familiar (shortest) form.
func Retag(ref, tag string) (string, error) {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	tagged, err := reference.WithTag(reference.TrimNamed(named), tag)
	if err != nil {
		return "", fmt.Errorf("apply tag %q to %q: %w", tag, ref, err)
	}
	return reference.FamiliarString(tagged), nil
}

// SameRef reports whether two image references are textually equivalent
// after normalization (docker.io/library expansion, implicit :latest).
// This is a declaration-level comparison used for drift detection only;
// it says nothing about image content.
func SameRef(a, b string) bool {
	na, err := reference.ParseNormalizedNamed(a)
	if err != nil {
		return a == b
	}
	nb, err := reference.ParseNormalizedNamed(b)
	if err != nil {
		return a == b
	}
	return reference.TagNameOnly(na).String() == reference.TagNameOnly(nb).String()
}
