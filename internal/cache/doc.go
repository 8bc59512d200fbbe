// Copyright (c) ModGuard Authors.
// Licensed under the MIT License.

/*
包 cache 封装 go-redis 客户端，为规则存储与就绪检查提供统一的连接。

# 核心类型

  - Manager：持有 redis.Client，提供 Get/Set/GetJSON/SetJSON/Delete/Ping，
    所有键统一加上 Config.KeyPrefix 前缀。
  - Config：地址、密码、连接池、默认 TTL 与健康检查间隔。

# 错误语义

键不存在时返回 ErrCacheMiss（可用 IsCacheMiss 判断），关闭后所有操作返回 ErrClosed。
*/
package cache
