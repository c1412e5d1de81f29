// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bootstrap handles Atlas collection initialization.
//
// This internal package ensures the Qdrant collection backing an Atlas
// ingestion target exists, with the named-vector spaces ("text", "code")
// the configured embedding backends require, before the ingestion controller
// or retrieval operations run against it.
//
// # Initialization workflow
//
//	info, err := bootstrap.InitCollection(ctx, cfg, map[string]int{
//	    "text": 768,
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("collection ready: %s\n", info.Collection)
//
//	store, collection, err := bootstrap.OpenStorage(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// # Idempotency
//
// InitCollection is idempotent: calling it multiple times on the same
// collection is safe and never migrates an existing collection's vector
// configuration.
package bootstrap
