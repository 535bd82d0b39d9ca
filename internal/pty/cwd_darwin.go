//go:build darwin && cgo

package pty

/*
#include <libproc.h>
#include <string.h>
#include <sys/param.h>
#include <sys/proc_info.h>

static int pid_cwd(int pid, char *buf, int buflen) {
	struct proc_vnodepathinfo vpi;
	int n = proc_pidinfo(pid, PROC_PIDVNODEPATHINFO, 0, &vpi, sizeof(vpi));
	if (n != (int)sizeof(vpi)) {
		return -1;
	}
	strlcpy(buf, vpi.pvi_cdir.vip_path, buflen);
	return 0;
}
*/
import "C"

import "unsafe"

// processCwd asks the kernel for the process's current directory vnode path.
func processCwd(pid int) (string, bool) {
	if pid <= 0 {
		return "", false
	}
	buf := make([]byte, C.MAXPATHLEN)
	if C.pid_cwd(C.int(pid), (*C.char)(unsafe.Pointer(&buf[0])), C.int(len(buf))) != 0 {
		return "", false
	}
	cwd := C.GoString((*C.char)(unsafe.Pointer(&buf[0])))
	if cwd == "" {
		return "", false
	}
	return cwd, true
}
