package common

import (
	"os"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cast"
)

var (
	node     *snowflake.Node
	nodeOnce sync.Once
)

func snode() *snowflake.Node {
	nodeOnce.Do(func() {
		nid := cast.ToInt64(os.Getenv("WAGATE_NODE_ID")) % 1024
		n, err := snowflake.NewNode(nid)
		if err != nil {
			n, _ = snowflake.NewNode(1)
		}
		node = n
	})
	return node
}

// UUIDint64 returns a snowflake id as int64.
func UUIDint64() int64 {
	return snode().Generate().Int64()
}

// UUIDstr returns a snowflake id in its base58 string form.
func UUIDstr() string {
	return snode().Generate().Base58()
}
