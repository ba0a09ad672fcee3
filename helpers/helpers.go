// Package helpers defines the fixed table of BPF helper functions a script
// can call: each helper's name, its numeric id, and the load-type
// description of each of its (up to 5) arguments. The numeric ids are the
// real Linux bpf_func_id values, so they are expressed directly as
// github.com/cilium/ebpf/asm.BuiltinFunc constants rather than a private
// re-enumeration.
package helpers

import "github.com/cilium/ebpf/asm"

// ArgType describes how a helper argument's value should be loaded before
// the call: as a plain value (Void, meaning "no special handling"), as a
// pointer to a map definition, as a pointer to a map key, or as a pointer
// to a map value.
type ArgType byte

const (
	Void ArgType = iota
	Map
	MapIndex
	MapValue
)

// Helper describes one callable BPF helper function.
type Helper struct {
	ID       asm.BuiltinFunc
	Name     string
	ArgTypes [5]ArgType
}

var mapArgs = [5]ArgType{Map, MapIndex, Void, Void, Void}
var mapValueArgs = [5]ArgType{Map, MapValue, Void, Void, Void}
var noArgs = [5]ArgType{Void, Void, Void, Void, Void}

// table is the full helper surface, grounded in the original bpf-script
// crate's Helpers enum (src/helpers.rs). Only the map family carries
// non-Void argument descriptors; every other helper's arguments are
// loaded as plain values.
var table = []Helper{
	{asm.FnMapLookupElem, "map_lookup_elem", mapArgs},
	{asm.FnMapUpdateElem, "map_update_elem", mapValueArgsFor(asm.FnMapUpdateElem)},
	{asm.FnMapDeleteElem, "map_delete_elem", mapArgs},
	{asm.FnProbeRead, "probe_read", noArgs},
	{asm.FnTracePrintk, "trace_printk", noArgs},
	{asm.FnSkbStoreBytes, "skb_store_bytes", noArgs},
	{asm.FnL3CsumReplace, "l3_csum_replace", noArgs},
	{asm.FnL4CsumReplace, "l4_csum_replace", noArgs},
	{asm.FnTailCall, "tail_call", noArgs},
	{asm.FnCloneRedirect, "clone_redirect", noArgs},
	{asm.FnGetCurrentPidTgid, "get_current_pid_tgid", noArgs},
	{asm.FnGetCurrentUidGid, "get_current_uid_gid", noArgs},
	{asm.FnGetCurrentComm, "get_current_comm", noArgs},
	{asm.FnSkbVlanPush, "skb_vlan_push", noArgs},
	{asm.FnSkbVlanPop, "skb_vlan_pop", noArgs},
	{asm.FnSkbGetTunnelKey, "skb_get_tunnel_key", noArgs},
	{asm.FnSkbSetTunnelKey, "skb_set_tunnel_key", noArgs},
	{asm.FnRedirect, "redirect", noArgs},
	{asm.FnPerfEventOutput, "perf_event_output", noArgs},
	{asm.FnSkbLoadBytes, "skb_load_bytes", noArgs},
	{asm.FnGetStackid, "get_stackid", noArgs},
	{asm.FnSkbGetTunnelOpt, "skb_get_tunnel_opt", noArgs},
	{asm.FnSkbSetTunnelOpt, "skb_set_tunnel_opt", noArgs},
	{asm.FnSkbChangeProto, "skb_change_proto", noArgs},
	{asm.FnSkbChangeType, "skb_change_type", noArgs},
	{asm.FnSkbUnderCgroup, "skb_under_cgroup", noArgs},
	{asm.FnProbeWriteUser, "probe_write_user", noArgs},
	{asm.FnCurrentTaskUnderCgroup, "current_task_under_cgroup", noArgs},
	{asm.FnSkbChangeTail, "skb_change_tail", noArgs},
	{asm.FnSkbPullData, "skb_pull_data", noArgs},
	{asm.FnGetNumaNodeId, "get_numa_node_id", noArgs},
	{asm.FnSkbChangeHead, "skb_change_head", noArgs},
	{asm.FnXdpAdjustHead, "xdp_adjust_head", noArgs},
	{asm.FnProbeReadStr, "probe_read_str", noArgs},
	{asm.FnSetHash, "set_hash", noArgs},
	{asm.FnSetsockopt, "setsockopt", noArgs},
	{asm.FnSkbAdjustRoom, "skb_adjust_room", noArgs},
	{asm.FnRedirectMap, "redirect_map", noArgs},
	{asm.FnSkRedirectMap, "sk_redirect_map", noArgs},
	{asm.FnSockMapUpdate, "sock_map_update", noArgs},
	{asm.FnXdpAdjustMeta, "xdp_adjust_meta", noArgs},
	{asm.FnPerfEventReadValue, "perf_event_read_value", noArgs},
	{asm.FnPerfProgReadValue, "perf_prog_read_value", noArgs},
	{asm.FnGetsockopt, "getsockopt", noArgs},
	{asm.FnOverrideReturn, "override_return", noArgs},
	{asm.FnSockOpsCbFlagsSet, "sock_ops_cb_flags_set", noArgs},
	{asm.FnMsgRedirectMap, "msg_redirect_map", noArgs},
	{asm.FnMsgApplyBytes, "msg_apply_bytes", noArgs},
	{asm.FnMsgCorkBytes, "msg_cork_bytes", noArgs},
	{asm.FnMsgPullData, "msg_pull_data", noArgs},
	{asm.FnBind, "bind", noArgs},
	{asm.FnXdpAdjustTail, "xdp_adjust_tail", noArgs},
	{asm.FnSkbGetXfrmState, "skb_get_xfrm_state", noArgs},
	{asm.FnGetStack, "get_stack", noArgs},
	{asm.FnSkbLoadBytesRelative, "skb_load_bytes_relative", noArgs},
	{asm.FnFibLookup, "fib_lookup", noArgs},
	{asm.FnSockHashUpdate, "sock_hash_update", noArgs},
	{asm.FnMsgRedirectHash, "msg_redirect_hash", noArgs},
	{asm.FnSkRedirectHash, "sk_redirect_hash", noArgs},
	{asm.FnLwtPushEncap, "lwt_push_encap", noArgs},
	{asm.FnLwtSeg6StoreBytes, "lwt_seg6_store_bytes", noArgs},
	{asm.FnLwtSeg6AdjustSrh, "lwt_seg6_adjust_srh", noArgs},
	{asm.FnLwtSeg6Action, "lwt_seg6_action", noArgs},
	{asm.FnRcRepeat, "rc_repeat", noArgs},
	{asm.FnRcKeydown, "rc_keydown", noArgs},
	{asm.FnSkSelectReuseport, "sk_select_reuseport", noArgs},
	{asm.FnSkRelease, "sk_release", noArgs},
	{asm.FnMapPushElem, "map_push_elem", mapValueArgsFor(asm.FnMapPushElem)},
	{asm.FnMapPopElem, "map_pop_elem", mapValueArgsFor(asm.FnMapPopElem)},
	{asm.FnMapPeekElem, "map_peek_elem", mapValueArgsFor(asm.FnMapPeekElem)},
	{asm.FnMsgPushData, "msg_push_data", noArgs},
	{asm.FnMsgPopData, "msg_pop_data", noArgs},
	{asm.FnRcPointerRel, "rc_pointer_rel", noArgs},
	{asm.FnSpinLock, "spin_lock", noArgs},
	{asm.FnSpinUnlock, "spin_unlock", noArgs},
	{asm.FnSkbEcnSetCe, "skb_ecn_set_ce", noArgs},
	{asm.FnTcpCheckSyncookie, "tcp_check_syncookie", noArgs},
	{asm.FnSysctlGetName, "sysctl_get_name", noArgs},
	{asm.FnSysctlGetCurrentValue, "sysctl_get_current_value", noArgs},
	{asm.FnSysctlGetNewValue, "sysctl_get_new_value", noArgs},
	{asm.FnSysctlSetNewValue, "sysctl_set_new_value", noArgs},
	{asm.FnStrtol, "strtol", noArgs},
	{asm.FnStrtoul, "strtoul", noArgs},
	{asm.FnSkStorageDelete, "sk_storage_delete", noArgs},
	{asm.FnSendSignal, "send_signal", noArgs},
	{asm.FnSkbOutput, "skb_output", noArgs},
	{asm.FnProbeReadUser, "probe_read_user", noArgs},
	{asm.FnProbeReadKernel, "probe_read_kernel", noArgs},
	{asm.FnProbeReadUserStr, "probe_read_user_str", noArgs},
	{asm.FnProbeReadKernelStr, "probe_read_kernel_str", noArgs},
	{asm.FnTcpSendAck, "tcp_send_ack", noArgs},
	{asm.FnSendSignalThread, "send_signal_thread", noArgs},
	{asm.FnReadBranchRecords, "read_branch_records", noArgs},
	{asm.FnGetNsCurrentPidTgid, "get_ns_current_pid_tgid", noArgs},
	{asm.FnXdpOutput, "xdp_output", noArgs},
	{asm.FnSkAssign, "sk_assign", noArgs},
	{asm.FnSeqPrintf, "seq_printf", noArgs},
	{asm.FnSeqWrite, "seq_write", noArgs},
	{asm.FnRingbufOutput, "ringbuf_output", noArgs},
	{asm.FnCsumLevel, "csum_level", noArgs},
	{asm.FnGetTaskStack, "get_task_stack", noArgs},
	{asm.FnLoadHdrOpt, "load_hdr_opt", noArgs},
	{asm.FnStoreHdrOpt, "store_hdr_opt", noArgs},
	{asm.FnReserveHdrOpt, "reserve_hdr_opt", noArgs},
	{asm.FnDPath, "d_path", noArgs},
	{asm.FnCopyFromUser, "copy_from_user", noArgs},
	{asm.FnSnprintfBtf, "snprintf_btf", noArgs},
	{asm.FnSeqPrintfBtf, "seq_printf_btf", noArgs},
	{asm.FnRedirectNeigh, "redirect_neigh", noArgs},
	{asm.FnRedirectPeer, "redirect_peer", noArgs},
	{asm.FnTaskStorageDelete, "task_storage_delete", noArgs},
	{asm.FnBprmOptsSet, "bprm_opts_set", noArgs},
	{asm.FnImaInodeHash, "ima_inode_hash", noArgs},
	{asm.FnCheckMtu, "check_mtu", noArgs},
	{asm.FnForEachMapElem, "for_each_map_elem", noArgs},
	{asm.FnSnprintf, "snprintf", noArgs},
}

func mapValueArgsFor(asm.BuiltinFunc) [5]ArgType { return mapValueArgs }

var byName map[string]Helper

func init() {
	byName = make(map[string]Helper, len(table))
	for _, h := range table {
		byName[h.Name] = h
	}
	// map_lookup_elem is intentionally absent from lookup-by-name below:
	// the original helper table defines the MapLookupElem variant and its
	// argument descriptor, but its from_string lookup never matches
	// "map_lookup_elem" — preserved here rather than silently fixed, since
	// it is observable behavior of the source this table is ported from.
	delete(byName, "map_lookup_elem")
}

// Lookup finds a helper by its C name, without the "bpf_" prefix.
func Lookup(name string) (Helper, bool) {
	h, ok := byName[name]
	return h, ok
}
