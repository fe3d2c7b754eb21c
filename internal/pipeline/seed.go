package pipeline

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"invest-assist-go/pkg/log"
	"invest-assist-go/pkg/tasks"
)

// ObjectUploader 把本地文件写入对象存储。
type ObjectUploader interface {
	Exists(ctx context.Context, objectName string) (bool, error)
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
}

// TaskEnqueuer 提交索引任务。
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task tasks.DocumentIndexTask) (bool, error)
}

// ImportSeedDir 扫描目录下的文件，上传到对象存储并提交索引任务。
// 文档以内容 MD5 作为 doc_id，对象已存在的文件直接跳过，重复启动是幂等的。
// 返回本次新导入的文件数。
func ImportSeedDir(ctx context.Context, dir string, uploader ObjectUploader, enqueuer TaskEnqueuer) int {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("ImportSeedDir: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return 0
	}

	imported := 0
	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.Size() == 0 {
			log.Infof("ImportSeedDir: 空文件跳过: %s", path)
			return nil
		}

		fileMD5, err := fileDigest(path)
		if err != nil {
			log.Warnf("ImportSeedDir: 读取文件失败: %s, err=%v", path, err)
			return nil
		}
		fileName := info.Name()
		objectName := fmt.Sprintf("seed/%s/%s", fileMD5, fileName)

		exists, err := uploader.Exists(ctx, objectName)
		if err != nil {
			log.Warnf("ImportSeedDir: 检查对象失败: %s, err=%v", objectName, err)
			return nil
		}
		if exists {
			log.Infof("ImportSeedDir: 已存在，跳过: %s (md5=%s)", fileName, fileMD5)
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			log.Warnf("ImportSeedDir: 打开文件失败: %s, err=%v", path, err)
			return nil
		}
		defer f.Close()
		if err := uploader.Put(ctx, objectName, f, info.Size(), contentTypeOf(fileName)); err != nil {
			log.Warnf("ImportSeedDir: 上传失败: %s, err=%v", path, err)
			return nil
		}

		task := tasks.DocumentIndexTask{
			DocID:      fileMD5,
			ObjectName: objectName,
			Title:      strings.TrimSuffix(fileName, filepath.Ext(fileName)),
		}
		if _, err := enqueuer.Enqueue(ctx, task); err != nil {
			log.Warnf("ImportSeedDir: 提交索引任务失败: %s, err=%v", fileName, err)
			return nil
		}
		imported++
		log.Infof("ImportSeedDir: 导入完成并已提交索引: %s", fileName)
		return nil
	})
	if walkErr != nil {
		log.Warnf("ImportSeedDir: 遍历目录发生错误: %v", walkErr)
	}
	return imported
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func contentTypeOf(fileName string) string {
	if ct := mime.TypeByExtension(filepath.Ext(fileName)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
