package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"mmu-quoter/gateway"
)

// genkey 生成（或读取已有的）请求签名密钥，打印 ClientKey。
func main() {
	path := flag.String("file", gateway.DefaultKeyFile, "密钥文件路径")
	flag.Parse()

	k, created, err := gateway.LoadOrCreateKeyFile(*path, time.Now())
	if err != nil {
		log.Fatalf("生成密钥失败: %v", err)
	}
	if created {
		fmt.Println("✅ 已生成新密钥")
	} else {
		fmt.Println("🔸 使用已有密钥")
	}
	fmt.Println("ClientKey(requestId) =", k.RequestID)
	fmt.Println("saved ->", *path)
}
