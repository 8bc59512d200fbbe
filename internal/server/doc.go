/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理。

Manager 封装 net/http.Server：Start 非阻塞启动，Run 阻塞直到 ctx
取消后优雅关闭，Shutdown 在超时内排空请求。配置了证书与私钥时使用
tlsutil.ServerTLSConfig 启动 HTTPS。API 服务与 /metrics 服务各持有
一个 Manager，由 cmd/modguard 通过 errgroup 统一调度。
*/
package server
