// inspect dumps a replica's collections for debugging: document counts per
// collection, or full documents for one collection with --collection.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"meshchat/pkg/logger"
	"meshchat/pkg/models"
	"meshchat/pkg/store"
)

func main() {
	var path, collection string
	flag.StringVar(&path, "path", "", "replica db path")
	flag.StringVar(&collection, "collection", "", "dump documents of one collection")
	flag.Parse()
	if path == "" {
		fmt.Fprintln(os.Stderr, "--path required")
		os.Exit(2)
	}
	logger.Init()
	if err := store.Open(path); err != nil {
		fmt.Fprintf(os.Stderr, "failed to open replica: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if collection != "" {
		docs, err := store.Query(collection, nil, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		for _, d := range docs {
			_ = enc.Encode(d)
		}
		return
	}

	for _, c := range []string{
		models.PublicRoomsCollectionID,
		models.PrivateRoomsCollectionID,
		models.PublicMessagesCollectionID,
		models.DefaultUsersCollectionID,
	} {
		docs, err := store.Query(c, nil, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: query failed: %v\n", c, err)
			continue
		}
		fmt.Fprintf(os.Stdout, "%-16s %d docs\n", c, len(docs))
	}
}
