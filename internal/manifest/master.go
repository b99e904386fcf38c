// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manifest

import (
	"context"
	"fmt"

	"github.com/ManuGH/lessoncast/internal/fetch"
	"github.com/ManuGH/lessoncast/internal/hls"
)

// FetchMaster downloads and parses the master playlist of an HLS source.
// Fetch errors are returned unwrapped so callers can classify them with the
// fetch package; parse errors wrap the hls sentinels.
func FetchMaster(ctx context.Context, f fetch.Fetcher, src Source, creds fetch.CredentialsMode) (*hls.MasterPlaylist, error) {
	body, err := f.FetchText(ctx, src.URL, creds)
	if err != nil {
		return nil, err
	}
	master, err := hls.ParseMaster(body, src.URL)
	if err != nil {
		return nil, fmt.Errorf("manifest: %s: %w", src.URL, err)
	}
	return master, nil
}
