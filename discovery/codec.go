// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package discovery

import "encoding/json"

func encodeNodeInfo(info NodeInfo) (string, error) {
	b, err := json.Marshal(info)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeNodeInfo(data []byte) (NodeInfo, error) {
	var info NodeInfo
	err := json.Unmarshal(data, &info)
	return info, err
}
